// Package storage stages downloaded files on local disk until they are
// uploaded.
//
// Files are written to <dir>/<artifact>/<name> through a .tmp file and a
// rename, so a crash never leaves a truncated file under its final name.
// Partial files from an interrupted run are removed by NewManager. Usage
// reports the bytes currently staged, which the harvest loop compares with
// its disk ceiling.
//
//	staging, err := storage.NewManager("raw/karnataka")
//	if err != nil {
//	    return err
//	}
//	path, n, err := staging.Save("ka.1999-03-02", "debate.pdf", func(w io.Writer) (int64, error) {
//	    return io.Copy(w, body)
//	})
//	...
//	_ = staging.Remove("ka.1999-03-02")
package storage
