package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Media folders recognised in generated object paths.
const (
	FolderGenerated = "generated-images"
	FolderEdited    = "edited-images"
)

// SamplePrefix is the object name prefix assigned to persisted batch items.
const SamplePrefix = "sample_"

var mediaFolders = map[string]struct{}{
	FolderGenerated: {},
	FolderEdited:    {},
}

// MediaObjectPath composes the object path for one persisted generation item:
// {userID}/{folder}/{folderID}/sample_{index}{ext}.
func MediaObjectPath(userID, folder, folderID string, index int, ext string) (string, error) {
	uid, err := validateSegment("userID", userID)
	if err != nil {
		return "", err
	}
	if _, ok := mediaFolders[folder]; !ok {
		return "", fmt.Errorf("storage: unsupported media folder %q", folder)
	}
	fid, err := validateSegment("folderID", folderID)
	if err != nil {
		return "", err
	}
	if index < 0 {
		return "", errors.New("storage: sample index must not be negative")
	}
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s/%s/%s/%s%d%s", uid, folder, fid, SamplePrefix, index, ext), nil
}

// MediaKeyFromObject derives the stable media key from a persisted object
// path by stripping the owner segment, the known media folder segments, the
// sample prefix, and the file extension.
func MediaKeyFromObject(userID, object string) string {
	object = strings.Trim(strings.TrimSpace(object), "/")
	if object == "" {
		return ""
	}

	uid := strings.TrimSpace(userID)
	var kept []string
	for _, segment := range strings.Split(object, "/") {
		if segment == "" || segment == uid {
			continue
		}
		if _, ok := mediaFolders[segment]; ok {
			continue
		}
		kept = append(kept, segment)
	}
	if len(kept) == 0 {
		return ""
	}

	last := kept[len(kept)-1]
	last = strings.TrimPrefix(last, SamplePrefix)
	if dot := strings.LastIndex(last, "."); dot > 0 {
		last = last[:dot]
	}
	kept[len(kept)-1] = last

	return strings.Join(kept, "/")
}

// ParseGCSURI splits a gs://bucket/object URI into its components.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimSpace(uri)
	if !strings.HasPrefix(trimmed, "gs://") {
		return "", "", fmt.Errorf("storage: not a GCS URI: %q", uri)
	}
	rest := strings.TrimPrefix(trimmed, "gs://")
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", fmt.Errorf("storage: malformed GCS URI: %q", uri)
	}
	return rest[:slash], rest[slash+1:], nil
}

// ExtensionForMime maps generated output mime types onto file extensions.
func ExtensionForMime(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".png"
	}
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
