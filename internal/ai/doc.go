// Package ai abstracts the natural-language generation collaborator used by
// the chat dispatcher. The interface is deliberately narrow: one-shot
// structured generation, a stateful conversational channel, and a reset.
// The concrete Gemini driver lives in internal/ai/gemini and talks to the
// generativelanguage HTTP API directly.
package ai
