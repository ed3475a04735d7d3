// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - leveled helpers taking a message and key-value pairs (InfoKV, ErrorKV, etc.).
//
// Services accept a context and extract the logger from it, so a run id or a
// package name attached once shows up on every line below it.
package logger
