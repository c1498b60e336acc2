// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package artifact writes output files so that a failed run never leaves
// a partially written file under the final name.
package artifact

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"
)

func removeIfTrue(file string, cond *bool) {
	if *cond {
		os.Remove(file)
	}
}

func writeTemp(name string, data []byte, perm os.FileMode) (string, error) {
	dir, base := filepath.Split(name)
	if dir == "" {
		dir = "."
	}

	f, err := ioutil.TempFile(dir, "."+base+".tmp")
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	fail := true
	defer removeIfTrue(tmp, &fail)

	n, err := f.Write(data)
	if err != nil {
		f.Close()
		return "", err
	} else if n != len(data) {
		f.Close()
		return "", errors.New("short write")
	}

	err = f.Chmod(perm)
	if err != nil {
		f.Close()
		return "", err
	}

	err = f.Close()
	if err != nil {
		return "", err
	}

	// Prevent cleanup
	fail = false

	return tmp, nil
}

// WriteFile writes data to a temporary file next to name, and renames it
// into place.
func WriteFile(name string, data []byte, perm os.FileMode) error {
	s := &Set{}
	s.Add(name, data, perm)
	return s.Commit()
}

type file struct {
	name string
	data []byte
	perm os.FileMode
}

// Set is a group of files which should all be written, or none of them.
type Set struct {
	files []file
}

func (s *Set) Add(name string, data []byte, perm os.FileMode) {
	s.files = append(s.files, file{name: name, data: data, perm: perm})
}

func (s *Set) Names() []string {
	names := make([]string, 0, len(s.files))
	for _, f := range s.files {
		names = append(names, f.name)
	}
	return names
}

// Commit writes every file to a temporary name first. Renames only start
// once all of the data is on disk, in the order the files were added. If a
// rename fails, the files already renamed are removed again, so the final
// names never hold part of a set. Put the file which marks a complete set
// last.
func (s *Set) Commit() error {
	fail := true
	tmps := make([]string, 0, len(s.files))

	for _, f := range s.files {
		tmp, err := writeTemp(f.name, f.data, f.perm)
		if err != nil {
			for _, t := range tmps {
				os.Remove(t)
			}
			return errors.Wrapf(err, "writing '%s'", f.name)
		}
		tmps = append(tmps, tmp)
		defer removeIfTrue(tmp, &fail)
	}

	for i, f := range s.files {
		err := os.Rename(tmps[i], f.name)
		if err != nil {
			// Take back the ones already in place
			for _, done := range s.files[:i] {
				os.Remove(done.name)
			}
			return errors.Wrapf(err, "renaming '%s'", f.name)
		}
		log.Verbosef("Wrote %s (%d bytes)\n", f.name, len(f.data))
	}

	fail = false

	return nil
}
