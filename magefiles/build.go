//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the module with the default (headless) build tags.
func (Build) Core() error {
	_, err := executeCmd("go", withArgs("build", "./..."), withStream())
	return err
}

// Compiles the module including the Vulkan backend adapter. Requires the
// Vulkan SDK and a cgo toolchain.
func (Build) Vulkan() error {
	_, err := executeCmd("go", withArgs("build", "-tags", "vulkan", "./..."), withStream())
	return err
}

// Runs go vet across the module.
func Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}

// Runs the full test suite with the race detector.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Formats the tree and tidies go.mod.
func Tidy() error {
	if _, err := executeCmd("gofmt", withArgs("-w", ".")); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("mod", "tidy"))
	return err
}
