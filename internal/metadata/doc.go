// Package metadata reads per-file facts and embedded tags from images.
//
// Every record carries size, timestamps, a BLAKE2b-256 content hash, the
// detected format and pixel dimensions. PNG text chunks are decoded; a
// Description chunk holding a JSON object is merged into the field map, which
// is where VRChat screenshots record the world and the players present. When
// exiftool is installed its tags are merged as well.
//
// Missing or corrupt embedded data never fails a record. Only a file that
// cannot be opened yields errdefs.ErrUnreadableFile.
package metadata
