package vfs

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	paths := []string{
		"/music/artist/song.mp3",
		"/music/Héllo Wörld/ä ö ü.flac",
		"/music/with space/track #1 [live].ogg",
		"/mnt/usb/100% legal.mp3",
		"/plain-path_without.specials~/x",
	}
	for _, p := range paths {
		enc := EncodePath(p)
		dec, err := DecodePath(enc)
		if err != nil {
			t.Fatalf("decode(%q) failed: %v", enc, err)
		}
		if dec != p {
			t.Errorf("round trip broke %q -> %q -> %q", p, enc, dec)
		}
	}
}

func TestEncodePreservesLiteralEscapeLookalikes(t *testing.T) {
	// raw filenames containing valid-looking %XX sequences must survive
	// untouched: %41 decodes to 'A', %20 to a space, but these are literal
	// characters of the name, not encoding
	cases := []struct {
		raw, encoded string
	}{
		{"/music/Track%41.mp3", "/music/Track%2541.mp3"},
		{"/downloads/My%20Song.mp3", "/downloads/My%2520Song.mp3"},
		{"/music/100%.mp3", "/music/100%25.mp3"},
	}
	for _, c := range cases {
		enc := EncodePath(c.raw)
		if enc != c.encoded {
			t.Errorf("EncodePath(%q) = %q, want %q", c.raw, enc, c.encoded)
		}
		dec, err := DecodePath(enc)
		if err != nil {
			t.Fatalf("decode(%q) failed: %v", enc, err)
		}
		if dec != c.raw {
			t.Errorf("round trip broke %q -> %q -> %q", c.raw, enc, dec)
		}
	}
}

func TestDecodeThenEncodeIsIdempotentOnStoredForms(t *testing.T) {
	// the canonical property for values read back from the database
	for _, raw := range []string{
		"/music/with space/100%.mp3",
		"/music/Track%41.mp3",
		"/plain/path.mp3",
	} {
		stored := EncodePath(raw)
		dec, err := DecodePath(stored)
		if err != nil {
			t.Fatalf("decode(%q) failed: %v", stored, err)
		}
		if EncodePath(dec) != stored {
			t.Errorf("encode(decode(%q)) != %q", stored, stored)
		}
	}
}

func TestEncodeKeepsUnreservedAndSlash(t *testing.T) {
	p := "/abc/XYZ/0-9._~"
	if enc := EncodePath(p); enc != p {
		t.Errorf("unreserved characters were escaped: %q", enc)
	}
}

func TestEncodeEscapesSpace(t *testing.T) {
	if enc := EncodePath("/a b"); enc != "/a%20b" {
		t.Errorf("expected /a%%20b, got %q", enc)
	}
}

func TestDecodeRejectsMalformedEscapes(t *testing.T) {
	for _, bad := range []string{"/a%2", "/a%zz", "/a%"} {
		if _, err := DecodePath(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestToFromMRL(t *testing.T) {
	path := "/mnt/music/my song.mp3"
	mrl := ToMRL(path)
	if mrl != "file:///mnt/music/my%20song.mp3" {
		t.Errorf("unexpected MRL %q", mrl)
	}
	back, err := FromMRL(mrl)
	if err != nil {
		t.Fatal(err)
	}
	if back != path {
		t.Errorf("round trip broke: %q", back)
	}
}

func TestFromMRLRejectsOtherSchemes(t *testing.T) {
	if _, err := FromMRL("smb://server/share/x.mkv"); err == nil {
		t.Error("expected error for non-file scheme")
	}
	if _, err := FromMRL("not-an-mrl"); err == nil {
		t.Error("expected error for a bare path")
	}
}

func TestDeviceForPath(t *testing.T) {
	devices := []Device{
		{UUID: "root", Mountpoint: "/"},
		{UUID: "usb", Mountpoint: "/mnt/usb", Removable: true},
	}

	d, ok := DeviceForPath(devices, "/mnt/usb/music/a.mp3")
	if !ok || d.UUID != "usb" {
		t.Errorf("expected usb device, got %+v ok=%v", d, ok)
	}

	d, ok = DeviceForPath(devices, "/home/me/a.mp3")
	if !ok || d.UUID != "root" {
		t.Errorf("expected root device, got %+v ok=%v", d, ok)
	}

	// prefix match must respect path boundaries
	d, ok = DeviceForPath(devices, "/mnt/usb2/a.mp3")
	if !ok || d.UUID != "root" {
		t.Errorf("expected root device for /mnt/usb2, got %+v", d)
	}
}

func TestRelativeToMountAndJoin(t *testing.T) {
	d := Device{UUID: "usb", Mountpoint: "/mnt/a", Removable: true}
	rel := RelativeToMount(d, "/mnt/a/music/song.mp3")
	if rel != "music/song.mp3" {
		t.Errorf("unexpected relative path %q", rel)
	}

	remounted := Device{UUID: "usb", Mountpoint: "/mnt/b", Removable: true}
	if got := JoinMount(remounted, rel); got != "/mnt/b/music/song.mp3" {
		t.Errorf("unexpected joined path %q", got)
	}
}
