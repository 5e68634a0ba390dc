package format

import "testing"

func TestHumanNumber(t *testing.T) {
	cases := map[uint64]string{
		0:          "0",
		999:        "999",
		1000:       "1K",
		123456:     "123K",
		1000000:    "1M",
		1234567:    "1.23M",
		7000000000: "7B",
		1500000000: "1.5B",
	}

	for input, want := range cases {
		if got := HumanNumber(input); got != want {
			t.Errorf("HumanNumber(%d) = %q, erwartet %q", input, got, want)
		}
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		512:        "512 B",
		1000:       "1 KB",
		1500:       "1.5 KB",
		25000000:   "25 MB",
		3000000000: "3 GB",
	}

	for input, want := range cases {
		if got := HumanBytes(input); got != want {
			t.Errorf("HumanBytes(%d) = %q, erwartet %q", input, got, want)
		}
	}

	if got := HumanBytes2(2048); got != "2.0 KiB" {
		t.Errorf("HumanBytes2(2048) = %q, erwartet 2.0 KiB", got)
	}
}
