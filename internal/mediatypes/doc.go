// Package mediatypes holds the image file allow-list and format names shared
// by discovery, metadata extraction and thumbnailing. It has no dependencies
// beyond the standard library so any package may import it.
//
//	mediatypes.IsImage("/photos/IMG_0001.JPG")    // true
//	mediatypes.FormatForPath("shot.tif")          // FormatTIFF
//	mediatypes.ParseFormat("jpeg").MimeType()     // "image/jpeg"
package mediatypes
