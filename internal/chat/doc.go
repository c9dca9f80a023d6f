// Package chat implements the conversational decision core: per-session
// state, intent classification, text extraction, and the priority-ordered
// message dispatcher that routes commands, transaction confirmations,
// attestation material and classified intents to their handlers.
package chat
