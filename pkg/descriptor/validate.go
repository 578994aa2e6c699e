// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrInvalidDescriptor is the sentinel error wrapped by InvalidDescriptorError.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// InvalidDescriptorError collects every field error found by Validate.
type InvalidDescriptorError struct {
	FieldErrs []error
}

// Error implements the error interface.
func (e *InvalidDescriptorError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrs))
	for _, err := range e.FieldErrs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid descriptor: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes ErrInvalidDescriptor and every field error to errors.Is/As.
func (e *InvalidDescriptorError) Unwrap() []error {
	return append([]error{ErrInvalidDescriptor}, e.FieldErrs...)
}

// Validate checks every field. It does not touch the filesystem: whether the
// manifest pair and the source tree exist is decided when the build context
// is staged.
func (d *Descriptor) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(d.BaseImage.Validate())
	add(d.Tool.Validate())
	add(validateRelPath("manifest.spec_file", d.Manifest.SpecFile))
	add(validateRelPath("manifest.lock_file", d.Manifest.LockFile))
	if d.Manifest.SpecFile == d.Manifest.LockFile {
		add(&InvalidRelPathError{Field: "manifest.lock_file", Value: d.Manifest.LockFile})
	}
	errs = append(errs, d.Env.Validate()...)
	add(d.WorkDir.Validate())
	add(validateRelPath("source.path", d.Source.Path))
	add(validateRelPath("source.dest", d.Source.Dest))
	add(d.ModulePath.Validate())
	errs = append(errs, d.Launch.Validate()...)
	for _, k := range slices.Sorted(maps.Keys(d.Labels)) {
		if k == "" || hasControl(k) || hasControl(d.Labels[k]) {
			add(fmt.Errorf("labels: invalid label %q", k))
		}
	}

	if len(errs) > 0 {
		return &InvalidDescriptorError{FieldErrs: errs}
	}
	return nil
}
