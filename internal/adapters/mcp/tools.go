package mcpadapter

import "github.com/mark3labs/mcp-go/mcp"

var estimateRepairTool = mcp.NewTool("estimate_repair",
	mcp.WithDescription("Produce an itemized collision repair estimate grounded in the indexed technical manuals. Financial requests are converted with a live USD exchange rate."),
	mcp.WithString("description",
		mcp.Required(),
		mcp.Description("Damage description or technical question, e.g. 'Estimate clear coat cost for a hood in EUR'"),
	),
	mcp.WithString("currency",
		mcp.Description("ISO 4217 target currency; detected from the description when omitted"),
	),
)

var searchManualsTool = mcp.NewTool("search_manuals",
	mcp.WithDescription("Semantic search over the indexed repair manuals and technical data sheets."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("k",
		mcp.Description("Number of segments to return (default from server configuration)"),
	),
)

var indexStatusTool = mcp.NewTool("index_status",
	mcp.WithDescription("Report the state of the technical manual index."),
)
