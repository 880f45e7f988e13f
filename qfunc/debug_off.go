//go:build !qfdebug

package qfunc

const debugChecks = false
