package checkpointer

import "fmt"

// fileEnumerator enumerates filenames
type fileEnumerator struct {
	i         int
	width     int
	name      string
	extension string
}

// filename returns the name of the next consecutive enumerated file
func (f *fileEnumerator) filename() string {
	f.i++
	return fmt.Sprintf("%v%0*d%v", f.name, f.width, f.i, f.extension)
}

// FilenameEnumerator returns a function which will return filenames
// with a counter integer suffix, zero padded to width digits. Each time
// the returned function is called, the filename counter suffix will be
// one higher than on the previous call, so that the first call returns
// the suffix start+1. The filename parameter is the full filename with
// its path, while the extension parameter determines the file
// extension.
func FilenameEnumerator(start, width int, filename,
	extension string) func() string {
	enum := fileEnumerator{
		i:         start,
		width:     width,
		name:      filename,
		extension: extension,
	}

	return enum.filename
}
