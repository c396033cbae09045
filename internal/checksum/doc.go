// Package checksum fingerprints batch files.
//
// The stager records the SHA-256 of every uploaded file as object metadata
// under MetadataKey. A later run that finds the object already stored compares
// the recorded digest with the local file and reports a mismatch, so a batch
// that was re-published upstream does not go unnoticed.
//
// # Example Usage
//
//	sum, err := checksum.New().SumFile(path)
//	if err != nil {
//	    return err
//	}
//	meta[checksum.MetadataKey] = sum
//
// # Thread Safety
//
// SHA256 is safe for concurrent use by multiple goroutines.
package checksum
