package scm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-pairank/internal/ports"
)

const twoFileDiff = `diff --git a/main.go b/main.go
index 1111111..2222222 100644
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
 package main
-func old() {}
+func newer() {}
+func extra() {}
 // end
diff --git a/util.go b/util.go
index 3333333..4444444 100644
--- a/util.go
+++ b/util.go
@@ -1,2 +1,1 @@
 package main
-var unused = 1
`

func TestParseDiffStats(t *testing.T) {
	tests := []struct {
		name string
		diff string
		want ports.DiffStats
	}{
		{name: "empty", diff: "", want: ports.DiffStats{}},
		{name: "whitespace", diff: "  \n", want: ports.DiffStats{}},
		{name: "two files", diff: twoFileDiff, want: ports.DiffStats{FilesChanged: 2, LinesAdded: 2, LinesRemoved: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDiffStats(tt.diff))
		})
	}
}
