//go:build qfdebug

package qfunc

// debugChecks makes QFunction.Apply verify buffer sizes before every call.
const debugChecks = true
