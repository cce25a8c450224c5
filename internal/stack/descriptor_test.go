// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package stack

import "testing"

func TestValidateDescriptor(t *testing.T) {
	cases := []struct {
		name       string
		descriptor string
		wantErr    bool
	}{
		{"empty", "", true},
		{"single known", "G", false},
		{"full set", "ADGNS", false},
		{"unknown character", "AGX", true},
		{"repeated character", "AGA", true},
		{"lowercase unknown", "agn", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateDescriptor(tc.descriptor)
			if tc.wantErr && err == nil {
				t.Fatalf("validateDescriptor(%q): expected error, got nil", tc.descriptor)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("validateDescriptor(%q): unexpected error: %v", tc.descriptor, err)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindActivityMonitor:  "ACTIVITY_MONITOR",
		KindDTLS:             "DTLS",
		KindGattlink:         "GATTLINK",
		KindNetworkInterface: "NETWORK_INTERFACE",
		KindDatagramSocket:   "DATAGRAM_SOCKET",
		Kind('?'):            "UNKNOWN",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%q).String() = %q, want %q", byte(k), got, want)
		}
	}
}
