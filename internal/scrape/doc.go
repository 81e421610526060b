// Package scrape drives one remote scrape job from submission to a terminal
// outcome. The Orchestrator submits the job, polls its status at a fixed
// interval under a bounded attempt budget, and fetches the dataset once the
// remote run succeeds. Every run ends in exactly one of a Result or a
// classified *Error.
package scrape
