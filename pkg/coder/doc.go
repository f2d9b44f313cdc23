// Package coder implements the developer role.
//
// A Developer runs the tool loop with the developer prompt until the model
// returns a change set. It never touches the working tree itself: applying
// the changes and reviewing them is the convergence controller's job.
//
// The developer sees the shared conversation state, so command output from
// earlier rounds and reviewer findings (REVIEW_SUMMARY #n) stay visible
// across revisions. After each applied round the state epoch is bumped and
// re-reading a file yields a fresh "@revN" label.
package coder
