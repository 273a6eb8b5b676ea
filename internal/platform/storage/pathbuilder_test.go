package storage

import "testing"

func TestMediaObjectPath(t *testing.T) {
	path, err := MediaObjectPath("user_1", FolderGenerated, "482915", 0, ".png")
	if err != nil {
		t.Fatalf("MediaObjectPath error: %v", err)
	}
	if path != "user_1/generated-images/482915/sample_0.png" {
		t.Fatalf("unexpected path %q", path)
	}

	if _, err := MediaObjectPath("", FolderGenerated, "1", 0, ".png"); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if _, err := MediaObjectPath("user", "library", "1", 0, ".png"); err == nil {
		t.Fatalf("expected error for unknown folder")
	}
	if _, err := MediaObjectPath("user", FolderEdited, "../up", 0, ".png"); err == nil {
		t.Fatalf("expected error for traversal sequence")
	}
	if _, err := MediaObjectPath("user", FolderEdited, "1", -1, ".png"); err == nil {
		t.Fatalf("expected error for negative index")
	}
}

func TestMediaKeyFromObject(t *testing.T) {
	cases := []struct {
		name   string
		userID string
		object string
		want   string
	}{
		{
			name:   "generated path",
			userID: "user_1",
			object: "user_1/generated-images/482915/sample_0.png",
			want:   "482915/0",
		},
		{
			name:   "edited path",
			userID: "user_1",
			object: "user_1/edited-images/901/sample_2.jpg",
			want:   "901/2",
		},
		{
			name:   "foreign owner segment kept",
			userID: "user_1",
			object: "user_2/generated-images/7/sample_1.png",
			want:   "user_2/7/1",
		},
		{
			name:   "empty",
			userID: "user_1",
			object: "",
			want:   "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MediaKeyFromObject(tc.userID, tc.object); got != tc.want {
				t.Fatalf("MediaKeyFromObject(%q, %q) = %q, want %q", tc.userID, tc.object, got, tc.want)
			}
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://media-out/user_1/generated-images/5/sample_0.png")
	if err != nil {
		t.Fatalf("ParseGCSURI error: %v", err)
	}
	if bucket != "media-out" || object != "user_1/generated-images/5/sample_0.png" {
		t.Fatalf("unexpected parse result %q %q", bucket, object)
	}

	for _, bad := range []string{"", "https://bucket/object", "gs://bucket", "gs://bucket/"} {
		if _, _, err := ParseGCSURI(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestExtensionForMime(t *testing.T) {
	cases := map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"IMAGE/WEBP": ".webp",
		"video/mp4":  ".mp4",
		"":           ".png",
	}
	for mime, want := range cases {
		if got := ExtensionForMime(mime); got != want {
			t.Fatalf("ExtensionForMime(%q) = %q, want %q", mime, got, want)
		}
	}
}
