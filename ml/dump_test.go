package ml_test

import (
	"testing"

	"github.com/7blacky7/nmt/ml"
	"github.com/7blacky7/nmt/ml/backend/cpu"
)

func TestDump(t *testing.T) {
	b, err := cpu.New(ml.BackendParams{Device: "cpu", Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ctx := b.NewContext()
	defer ctx.Close()

	cases := []struct {
		name string
		t    ml.Tensor
		opts []ml.DumpOptions
		want string
	}{
		{
			name: "matrix",
			t:    ctx.FromFloats([]float32{1, 2, 3, 4}, 2, 2),
			opts: []ml.DumpOptions{ml.DumpWithPrecision(1)},
			want: "[[ 1.0,  2.0],\n [ 3.0,  4.0]]",
		},
		{
			name: "ints",
			t:    ctx.FromInts([]int32{1, -2, 3}, 3),
			want: "[ 1, -2,  3]",
		},
		{
			name: "edge items",
			t:    ctx.FromInts([]int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 10),
			opts: []ml.DumpOptions{ml.DumpWithThreshold(4), ml.DumpWithEdgeItems(2)},
			want: "[ 0,  1, ...,  8,  9]",
		},
		{
			name: "half",
			t:    ctx.FromFloats([]float32{0.5, -1}, 2).Cast(ctx, ml.DTypeF16),
			opts: []ml.DumpOptions{ml.DumpWithPrecision(2)},
			want: "[ 0.50, -1.00]",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := ml.Dump(ctx, tt.t, tt.opts...); got != tt.want {
				t.Errorf("Dump() = %q, erwartet %q", got, tt.want)
			}
		})
	}
}

func TestParseDevice(t *testing.T) {
	cases := []struct {
		in      string
		library string
		id      int
		err     bool
	}{
		{"cpu", "cpu", 0, false},
		{" CPU:2 ", "cpu", 2, false},
		{"cuda:x", "", 0, true},
		{"", "", 0, true},
	}

	for _, tt := range cases {
		library, id, err := ml.ParseDevice(tt.in)
		if (err != nil) != tt.err || library != tt.library || id != tt.id {
			t.Errorf("ParseDevice(%q) = %q, %d, %v", tt.in, library, id, err)
		}
	}
}
