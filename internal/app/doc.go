// Package app wires murmur's components for the CLI.
//
// Config is read from the environment (and an optional .env file). Wire
// builds the stores, relay dialer and identity service from it, and runs the
// two long-lived loops: RunExecutor pairs with an initiator and serves its
// questions from a backend, RunInitiator turns captured utterances into
// turns and speaks the answers.
package app
