// Command mediapack packages content sources into descriptor files.
//
// It exposes create for single sources, batch for many, watch for a
// drop directory, inspect for reading descriptors back, history for
// past runs, and config helpers.
package main
