// Package flare houses the Flare network provider: in-memory account
// generation, the single-slot pending transaction queue with its exact-text
// confirmation contract, transaction signing and broadcast, the swap
// preview flow, and the FTSOv2 price feed contract read.
package flare
