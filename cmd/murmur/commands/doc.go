// Package commands defines the murmur CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init         Create the executor identity
//   - fingerprint  Print the executor identity fingerprint
//   - pair-code    Print the pairing token for this executor
//   - pair         Store a pairing token on the initiator
//   - serve        Run the executor against the configured backend
//   - chat         Run the initiator, one utterance per input line
//   - discover     Look for relays on the local network
//
// # Implementation
//
// The root command loads configuration from the environment (and an optional
// .env file), applies flag overrides and builds the app.Wire before any
// subcommand runs.
package commands
