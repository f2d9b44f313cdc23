// Package mocks provides shared test doubles.
//
//   - MockGenerator: scripted agent.Generator that records each call.
//   - MockLLMClient: llm.LLMClient with configurable responses.
//   - MockGitRunner: git.GitRunner with per-command responses.
//
// For realistic git behaviour prefer a real repository in t.TempDir();
// the mocks suit unit tests where speed and determinism matter.
package mocks
