// Package optimize rewrites media URLs into bandwidth-appropriate variants.
//
// Only URLs belonging to the known image-processing proxy (see
// mediatype.IsSpecialService) are rewritten; everything else passes through
// untouched. Rewritten URLs carry format, width, height and quality as query
// parameters, scaled by the device pixel ratio and adjusted for the observed
// connection speed.
//
// Optimize is pure and deterministic so that rewritten URLs can serve as
// stable cache keys for the preload scheduler and the cache store.
package optimize
