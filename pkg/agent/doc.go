// Package agent connects the agent loop to remote models.
//
// A Generator turns a role instruction, the shared conversation state, and a
// turn message into raw reply text. LLMGenerator implements it over an
// llm.LLMClient; NewClient builds a provider client for a model name wrapped
// in the metrics and retry middleware:
//
//	metrics -> retry -> provider client
//
// Tests inject a scripted Generator instead (see internal/mocks).
package agent
