// Package xcell provides an atomically reference-counted exclusive
// cell: one mutable payload shared by many goroutines, mutated under
// mutual exclusion, and retrieved exactly once when the sharers are
// done. Cloned handles alias a single allocation, a panic inside a
// critical section poisons the cell for every sharer, and unwrapping
// hands the payload to exactly one retriever regardless of how many
// sharers exist or in what order they finish.
package xcell
