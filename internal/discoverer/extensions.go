package discoverer

import (
	"sort"
	"strings"
)

// supportedExtensions is every container/codec/playlist extension the
// engine schedules for parsing. MUST stay ordered alphabetically: lookup
// is a binary search.
var supportedExtensions = []string{
	"3gp", "a52", "aac", "ac3", "aif", "aifc", "aiff", "alac", "amr",
	"amv", "aob", "ape", "asf", "asx", "avi", "b4s",
	"divx", "dts", "dv", "flac", "flv", "gxf", "ifo", "iso",
	"it", "m1v", "m2t", "m2ts", "m2v", "m3u", "m3u8",
	"m4a", "m4b", "m4p", "m4v", "mid", "mka", "mkv", "mlp",
	"mod", "mov", "mp1", "mp2", "mp3", "mp4", "mpc", "mpeg",
	"mpeg1", "mpeg2", "mpeg4", "mpg", "mts", "mxf", "nsv",
	"nuv", "oga", "ogg", "ogm", "ogv", "ogx", "oma", "opus",
	"pls", "ps", "rec", "rm", "rmi", "rmvb",
	"s3m", "spx", "tod", "trp", "ts", "tta",
	"vob", "voc", "vqf", "vro", "w64", "wav", "wax", "webm",
	"wma", "wmv", "wmx", "wpl", "wv", "wvx", "xa", "xm", "xspf",
}

// SupportedExtensions returns the whitelist, sorted.
func SupportedExtensions() []string {
	out := make([]string, len(supportedExtensions))
	copy(out, supportedExtensions)
	return out
}

// IsSupportedExtension reports whether ext (without the dot, any case) is
// whitelisted.
func IsSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	i := sort.SearchStrings(supportedExtensions, ext)
	return i < len(supportedExtensions) && supportedExtensions[i] == ext
}
