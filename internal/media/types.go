package media

// extensionTypes covers the attachments people usually drop into a chat.
// Anything else is sniffed from the file header.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".svg":  "image/svg+xml",

	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",

	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".md":   "text/markdown",
	".txt":  "text/plain",
	".zip":  "application/zip",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
}
