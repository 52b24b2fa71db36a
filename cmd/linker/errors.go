package main

import "golang.org/x/xerrors"

var errNoProjects = xerrors.New("linker: no projects named")
