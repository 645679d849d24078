// Package mediareceiver receives media files from devices on the local
// network and sorts them into category directories on disk.
//
// A phone or laptop browses to the server, picks files on the upload page and
// submits the form. Each file part is streamed straight to storage, classified
// by its extension and given a timestamped name, so a large video never has to
// fit in memory.
//
// # Key Components
//
//   - UploadService: receives multipart bodies, imports local files and keeps
//     the optional upload ledger in sync with the category directories
//   - FileStorage: destination storage with commit-or-discard pending files
//   - UploadRepo: ledger of stored uploads (SQLite, PostgreSQL or none)
//   - Observer: receives status, counter and log events from the server
//   - Counters: session visitor and file counters
//
// # Categories
//
// Files land in one of images, videos, audio, documents or other, chosen by
// Classify from the lowercased extension.
//
// # Example Usage
//
//	store, closeRoot, err := filesystem.Open(storageRoot)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer closeRoot()
//
//	service, err := mediareceiver.NewUploadService(nil, store, mediareceiver.ServiceConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	file, err := service.Import(ctx, "holiday.jpg", reader)
//
// See the server package for the upload listener and the http package for the
// JSON status API.
package mediareceiver
