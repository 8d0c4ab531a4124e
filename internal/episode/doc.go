// Package episode defines the episode data model: one captured coding
// session reduced to structured intent, context, and outcome, plus the
// learned utility annotation that evolves under feedback.
//
// Episodes are immutable by identity (the id never changes) and mutable
// by annotation (utility, retrieval history). Equality and addressing
// use the id only.
package episode
