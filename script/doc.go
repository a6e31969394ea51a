// Package script runs host command scripts against an instrument.
//
// A script is a sequence of statements; whitespace and line breaks are
// insignificant and '#' starts a comment:
//
//	send "<bytes>"             write one message
//	query "<bytes>" [max N]    write, then read a reply of at most N bytes
//	read [max N]               read a reply
//	expect "<bytes>"           compare the last reply
//	expect hex "<digits>"      compare the last reply, hex-encoded
//	expect len N               check the last reply length
//	sleep MS                   pause
//
// Strings take Go escapes, so binary payloads can be written as "\x00\xff".
package script
