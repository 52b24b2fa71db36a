package main

import "strings"

// stringList accumulates repeated occurrences of a flag, e.g.
// -asset-search-path dir1 -asset-search-path dir2, into a slice.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}
