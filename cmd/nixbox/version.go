package main

// version is overridden at build time via -ldflags, matching the teacher's
// own version-stamping convention.
var version = "source"
