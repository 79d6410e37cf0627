package git

import (
	"fmt"

	gogit "gopkg.in/src-d/go-git.v4"
)

// Head returns the commit SHA checked out in the repository at dir
func Head(dir string) (sha string, err error) {
	r, err := gogit.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("cannot open repository %s: %v", dir, err)
	}
	ref, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("cannot resolve HEAD in %s: %v", dir, err)
	}
	return ref.Hash().String(), nil
}
