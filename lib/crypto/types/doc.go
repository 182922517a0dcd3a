// Package types declares the signing interfaces shared by the algorithm
// packages under lib/crypto. Router identities pick a concrete
// implementation from their key certificate.
package types
