package domain

// Prompt is the provider-neutral message pair sent to a backend.
type Prompt struct {
	// System is the fixed analysis preamble.
	System string

	// User holds the data description followed by the user query.
	User string
}

// ChartFence is the info string that opens a chart directive block.
const ChartFence = "chart"

// DefaultAnalysisPreamble instructs the model how to answer. It defines the
// chart block sub-format that the response parser recognises, so the two
// must change together.
const DefaultAnalysisPreamble = "You are a data analysis assistant. You are given one or more datasets, " +
	"described by their columns, inferred types and a sample of rows, followed by a question.\n" +
	"\n" +
	"Answer the question with a short, concrete insight in plain text. Base every claim on the data.\n" +
	"\n" +
	"When a chart or table helps, add one block per chart in exactly this format:\n" +
	"\n" +
	"```chart\n" +
	"type=bar\n" +
	"title=Revenue by region\n" +
	"source=sales.csv\n" +
	"x=Region\n" +
	"y=Revenue\n" +
	"north,120\n" +
	"south,95\n" +
	"```\n" +
	"\n" +
	"Rules for chart blocks:\n" +
	"- type is one of bar, line or table.\n" +
	"- x names the category column and y names one or more value columns, comma separated.\n" +
	"- Use column names exactly as they appear in the dataset description.\n" +
	"- source is optional and names the dataset the columns come from.\n" +
	"- After the header lines, write one row per line as label,value[,value...] with one value per y column.\n" +
	"- bar and line values must be plain numbers without units or thousands separators.\n" +
	"- Do not put chart data anywhere except inside chart blocks."
