// Package config loads the simulator configuration from YAML.
//
// A missing file yields defaults. Environment variables override the file:
//
//	TMC_TRANSPORT   transport.kind (stdio, serial)
//	TMC_PORT        transport.port
//	TMC_BAUD        transport.baud
//	TMC_MODE        transport.mode (text, hex)
//	TMC_DIAG_ADDR   diag.addr (empty disables the server)
//	TMC_LOG_LEVEL   log.level
//	TMC_LOG_FORMAT  log.format
package config
