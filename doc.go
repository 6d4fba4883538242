// Package main provides the mchown command-line interface.
//
// mchown changes the owner and group of a directory tree, like chown -R, with
// the directories spread over a pool of workers. It is meant for trees with
// millions of entries where a single-threaded walk is bound by syscall
// latency rather than by the disks.
//
// Usage:
//
//	mchown [-d] [-n N] [--metrics-file F] <path> <user> <group>
//
// The binary also carries utility subcommands:
//   - seed: Generate a randomized test tree
//   - count: Count entries in a tree and check their owner
package main
