package research

import (
	"fmt"
	"strings"

	"github.com/BaSui01/deepresearch/types"
)

// renderConversation 把对话渲染为 "Human: ... / AI: ..." 的纯文本。
func renderConversation(msgs []types.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var prefix string
		switch m.Role {
		case types.RoleUser:
			prefix = "Human"
		case types.RoleAssistant:
			prefix = "AI"
		case types.RoleSystem:
			prefix = "System"
		case types.RoleTool:
			prefix = "Tool"
		}
		lines = append(lines, prefix+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func clarifyWithUserPrompt(conversation []types.Message, date string) string {
	return fmt.Sprintf(`These are the messages that have been exchanged so far from the user asking for the report:
<Messages>
%s
</Messages>

Today's date is %s.

Assess whether you need to ask a clarifying question, or if the user has already provided enough information
for you to start research. If there are acronyms, abbreviations, or unknown terms, ask the user to clarify.
If you have already asked a clarifying question in the message history, you almost always do not need to ask another one.

Respond in valid JSON with these exact keys:
"need_clarification": boolean,
"question": "<question to ask the user to clarify the report scope>",
"verification": "<verification message that we will start research>"

If you need to ask a clarifying question, set need_clarification to true, fill in question, and leave verification empty.
If you do not need to ask a clarifying question, set need_clarification to false, leave question empty, and use
verification to acknowledge that you will now start research, briefly restating your understanding of the request.`,
		renderConversation(conversation), date)
}

func transformMessagesIntoTopicPrompt(conversation []types.Message, date string) string {
	return fmt.Sprintf(`You will be given a set of messages that have been exchanged so far between yourself and the user.
Your job is to translate these messages into a more detailed and concrete research question that will be used to guide the research.

The messages that have been exchanged so far between yourself and the user are:
<Messages>
%s
</Messages>

Today's date is %s.

You will return a single research question that will be used to guide the research.
1. Maximize specificity and detail: include all known user preferences and explicitly list key attributes or dimensions to consider.
2. Fill in unstated but necessary dimensions as open-ended rather than inventing constraints.
3. Phrase the request from the perspective of the user, in the first person.
4. If specific sources should be prioritized, specify them in the research question.`,
		renderConversation(conversation), date)
}

func leadResearcherPrompt(date string, maxConcurrent, maxIterations int) string {
	return fmt.Sprintf(`You are a research supervisor. Your job is to conduct research by calling the "conduct_research" tool.
For context, today's date is %s.

<Task>
Call the "conduct_research" tool to conduct research against the overall research question passed in by the user.
When you are completely satisfied with the research findings returned from the tool calls, call the "research_complete" tool.
</Task>

<Available Tools>
1. conduct_research: delegate research tasks to specialized sub-agents
2. research_complete: indicate that research is complete
3. think: reflect on results and plan next steps

Use think before calling conduct_research to plan your approach, and after each conduct_research to assess progress.
Never call think in parallel with any other tool.
</Available Tools>

<Hard Limits>
- Bias towards a single sub-agent unless the request has clear opportunity for parallelization.
- Stop when you can answer confidently; do not keep delegating research for perfection.
- Use at most %d parallel sub-agents per iteration.
- Limit tool calls: always stop after %d rounds of conduct_research and research_complete if you cannot find the right sources.
</Hard Limits>

<Scaling Rules>
Each conduct_research call spawns a dedicated research agent for that specific topic.
A separate agent will write the final report; you only need to gather information.
When calling conduct_research, provide complete standalone instructions and do not use acronyms or abbreviations.
</Scaling Rules>`, date, maxConcurrent, maxIterations)
}

// researchAgentPrompt 在内置的搜索与反思之外列出外部工具（例如 MCP 服务器提供的工具）。
func researchAgentPrompt(date string, extra []types.ToolSchema) string {
	var more strings.Builder
	for i, s := range extra {
		desc := s.Description
		if desc == "" {
			desc = "external tool"
		}
		fmt.Fprintf(&more, "%d. %s: %s\n", i+3, s.Name, desc)
	}

	return fmt.Sprintf(`You are a research assistant conducting research on the user's input topic. For context, today's date is %s.

<Task>
Use tools to gather information about the user's input topic.
</Task>

<Available Tools>
1. tavily_search: for conducting web searches to gather information
2. think: for reflection and strategic planning during research
%s
Use think after each search to reflect on results and plan next steps.
</Available Tools>

<Hard Limits>
- Simple queries: use 2-3 search tool calls maximum.
- Complex queries: use up to 5 search tool calls maximum.
- Stop immediately when you can answer the question comprehensively, have 3 or more relevant sources,
  or your last two searches returned similar information.
</Hard Limits>`, date, more.String())
}

func compressResearchPrompt(date string) string {
	return fmt.Sprintf(`You are a research assistant that has conducted research on a topic by calling several tools and web searches.
Your job is now to clean up the findings, but preserve all of the relevant statements and information that the researcher has gathered.
For context, today's date is %s.

<Guidelines>
1. Output findings should be fully comprehensive and include ALL of the information and sources gathered, repeated verbatim.
2. The report can be as long as necessary to return ALL of the information gathered.
3. Include inline citations for each source.
4. Include a "Sources" section at the end listing all sources with their citations.
</Guidelines>

<Output Format>
**List of Queries and Tool Calls Made**
**Fully Comprehensive Findings**
**List of All Relevant Sources (with citations in the report)**
</Output Format>

Critical: any information even remotely relevant to the research topic must be preserved verbatim.`, date)
}

func compressResearchHumanPrompt(topic string) string {
	return fmt.Sprintf(`All above messages are about research conducted by an AI Researcher for the following research topic:

RESEARCH TOPIC: %s

Your task is to clean up these research findings while preserving ALL information that is relevant to answering this specific research question.
Focus on information directly relevant to the research topic, preserve exact facts, statistics and data points, keep all source
citations and URLs, and do not summarize or paraphrase away details.`, topic)
}

func finalReportPrompt(brief, findings, date string) string {
	return fmt.Sprintf(`Based on all the research conducted, create a comprehensive, well-structured answer to the overall research brief:
<Research Brief>
%s
</Research Brief>

Today's date is %s.

Here are the findings from the research that you conducted:
<Findings>
%s
</Findings>

Please create a detailed answer to the overall research brief that:
1. Is well-organized with proper headings (# for title, ## for sections, ### for subsections)
2. Includes specific facts and insights from the research
3. References relevant sources using [Title](URL) format
4. Provides a balanced, thorough analysis
5. Includes a "Sources" section at the end with all referenced links

<Citation Rules>
- Assign each unique URL a single citation number in your text
- End with ### Sources that lists each source with corresponding numbers
- Number sources sequentially without gaps (1,2,3,4...) in the final list
</Citation Rules>`, brief, date, findings)
}
