package indexer_test

import (
	"errors"
	"testing"

	"fsindex/internal/indexer"
)

func TestNewAbsPath(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"/home/user", "/home/user", false},
		{"/home/user/", "/home/user", false},
		{"/home/./user/../user", "/home/user", false},
		{"/", "/", false},
		{"home/user", "", true},
		{"./x", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := indexer.NewAbsPath(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, indexer.ErrRelativePath) {
					t.Errorf("NewAbsPath(%q) error = %v, want ErrRelativePath", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAbsPath(%q) error = %v", tt.raw, err)
			}
			if got.String() != tt.want {
				t.Errorf("NewAbsPath(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAbsPath_Contains(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"/a", "/a", true},
		{"/a", "/a/b", true},
		{"/a", "/ab", false},
		{"/a/b", "/a", false},
		{"/", "/anything", true},
	}
	for _, tt := range tests {
		a, b := mustAbs(t, tt.a), mustAbs(t, tt.b)
		if got := a.Contains(b); got != tt.want {
			t.Errorf("%s.Contains(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestValidateRoots(t *testing.T) {
	tests := []struct {
		name    string
		roots   []string
		wantErr error
	}{
		{"single root", []string{"/home"}, nil},
		{"disjoint roots", []string{"/home/a", "/home/b", "/srv"}, nil},
		{"sibling prefix is not overlap", []string{"/data", "/data2"}, nil},
		{"nested roots", []string{"/home", "/home/user"}, indexer.ErrOverlappingRoots},
		{"nested roots reversed", []string{"/home/user", "/home"}, indexer.ErrOverlappingRoots},
		{"duplicate roots", []string{"/srv", "/srv/"}, indexer.ErrOverlappingRoots},
		{"filesystem root", []string{"/", "/etc"}, indexer.ErrOverlappingRoots},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var roots []indexer.AbsPath
			for _, r := range tt.roots {
				roots = append(roots, mustAbs(t, r))
			}
			err := indexer.ValidateRoots(roots)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidateRoots() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRoots() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("empty list", func(t *testing.T) {
		if err := indexer.ValidateRoots(nil); err == nil {
			t.Error("ValidateRoots(nil) expected error")
		}
	})

	t.Run("zero root", func(t *testing.T) {
		if err := indexer.ValidateRoots([]indexer.AbsPath{{}}); !errors.Is(err, indexer.ErrRelativePath) {
			t.Errorf("ValidateRoots() error = %v, want ErrRelativePath", err)
		}
	})
}

func TestParentPath(t *testing.T) {
	tests := map[string]string{
		"/":          "",
		"/a":         "/",
		"/a/b":       "/a",
		"/a/b/c.txt": "/a/b",
	}
	for in, want := range tests {
		if got := indexer.ParentPath(in); got != want {
			t.Errorf("ParentPath(%q) = %q, want %q", in, got, want)
		}
	}
}
