// Package store declares the repository used to keep an audit log of
// orchestration runs.
package store
