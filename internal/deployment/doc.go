// Package deployment defines the immutable deployment request, the parameter
// resolver that builds it, and the error taxonomy shared by every stage.
//
// A Request is resolved once from invocation arguments and environment-style
// variables and then passed by value through the pipeline. No stage reads
// ambient process state directly.
package deployment
