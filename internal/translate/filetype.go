package translate

import "strings"

// fileTypes maps MIME substrings to the file_type the download endpoint
// expects. Rows are checked in order. The OOXML presentation and
// spreadsheet types contain "officedocument", so they are matched before
// the word row's "doc".
var fileTypes = []struct {
	substrings []string
	fileType   string
}{
	{[]string{"presentationml"}, "pptx"},
	{[]string{"spreadsheetml"}, "xlsx"},
	{[]string{"word", "docx", "doc"}, "docx"},
	{[]string{"pdf"}, "pdf"},
	{[]string{"powerpoint", "ppt"}, "pptx"},
	{[]string{"excel", "xlsx"}, "xlsx"},
	{[]string{"jpg", "jpeg"}, "jpg"},
	{[]string{"png"}, "png"},
	{[]string{"bmp"}, "bmp"},
}

// FileType derives the translated file type from a MIME type. It returns
// "" when the type is unknown.
func FileType(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	for _, row := range fileTypes {
		for _, s := range row.substrings {
			if strings.Contains(mimeType, s) {
				return row.fileType
			}
		}
	}
	return ""
}

// Label returns the backend's description of a job status code.
func Label(code int) string {
	switch code {
	case 1:
		return "Uploading"
	case 2:
		return "Converting"
	case 3:
		return "Translating"
	case 4:
		return "Completed"
	case 5:
		return "Generating"
	case -1:
		return "Upload failed"
	case -2:
		return "Conversion failed"
	case -3, -10:
		return "Translation failed"
	case -4:
		return "Cancelled"
	case -5:
		return "Generation failed"
	case -11:
		return "File deleted"
	default:
		return "Unknown"
	}
}
