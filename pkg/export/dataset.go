package export

// Column describes one exported field. Width is a relative weight used by
// the PDF renderer; zero means an even share.
type Column struct {
	Key   string
	Title string
	Width float64
}

// Dataset defines tabular export content.
type Dataset struct {
	Title    string
	Subtitle string
	Columns  []Column
	Rows     []map[string]string
}

func (d Dataset) header() []string {
	titles := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		titles[i] = col.Title
		if titles[i] == "" {
			titles[i] = col.Key
		}
	}
	return titles
}

func (d Dataset) record(row map[string]string) []string {
	record := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		record[i] = row[col.Key]
	}
	return record
}
