// Package prompt holds the fixed instruction blocks injected into sessions.
// The blocks are configuration content, not branching logic: controllers
// append them to task messages at well-defined points and never remove them
// from the transcript fed forward.
package prompt

import (
	"fmt"

	"clockwork/pkg/chat"
)

// Synthetic message sources. Instruction blocks are attributed to these so
// transcripts show where operational content came from.
const (
	SourceUser   chat.RoleID = "User"
	SourceSystem chat.RoleID = "System"
)

// DirectoryInstructions tells the implementer where every output file must
// be written. Appended once before the first implementer run.
func DirectoryInstructions(outputDir string) chat.Message {
	return chat.NewMessage(SourceUser, fmt.Sprintf(`IMPORTANT FILE PATH INSTRUCTIONS:

ALL output files (plots, data, etc.) MUST be saved in this exact directory:
%[1]s

Examples of correct file paths:
- plt.savefig('%[1]s/histogram.png')
- df.to_csv('%[1]s/results.csv')
- np.save('%[1]s/array_data.npy')

Do NOT save files to the current directory or any other location. Always use '%[1]s/' as the path prefix.
`, outputDir))
}

// EngineeringHeuristics is the best-practice checklist appended alongside
// DirectoryInstructions before the first implementer run.
func EngineeringHeuristics() chat.Message {
	return chat.NewMessage(SourceUser, `ENGINEERING BEST PRACTICES AND TROUBLESHOOTING HEURISTICS:

When implementing your solution, follow these heuristics:

1. DATA UNDERSTANDING:
   - Always start by exploring and understanding the data structure (column names, data types, missing values)
   - Print shapes, descriptive statistics, and a few sample rows first
   - Check for missing data, outliers, or unusual distributions before proceeding

2. TROUBLESHOOTING APPROACH:
   - When you encounter a problem, simplify your code to isolate it
   - Test individual components separately before combining them
   - Print intermediate results to verify each step works as expected
   - When debugging, start with the simplest possible version of your code

3. DEVELOPMENT STRATEGY:
   - Start small with atomic, focused steps that do one thing well
   - Test each component separately before combining them
   - Build up complexity incrementally, verifying at each step
   - Use intermediate data files to break complex processes into manageable stages

4. PERFORMANCE AND QUALITY:
   - Use sampling for initial testing when working with large datasets
   - Monitor memory usage and optimize for large data processing
   - Create clear, informative visualizations with proper labels and titles
   - Add useful comments explaining WHY, not just WHAT your code does

5. DATA SPLITTING BEST PRACTICES:
   - Always maintain stratification for important variables when splitting
   - Check the distributions in your train/test splits to ensure they're representative
   - Verify there's no data leakage between splits
   - Use k-fold cross-validation when appropriate to ensure stable results

6. OUTPUT VALIDATION:
   - Generate summary statistics for each data split and compare them
   - Create plots showing distributions across splits to visually confirm balance
   - Create clear tables showing counts and percentages of key variables

Remember to check your results at each step and build up complexity gradually.
`)
}

// NotebookReminder asks the implementer to record findings in the lab
// notebook at the end of a run.
func NotebookReminder() chat.Message {
	return chat.NewMessage(SourceUser, `IMPORTANT: DOCUMENT YOUR WORK

At the end of your implementation, use the write_notebook tool to document your work in the lab notebook:
1. Record important data insights
2. Record significant implementation decisions
3. Record key metrics and evaluation results

Example:
write_notebook(
    entry="""Implemented data splitting with stratification. chi-square results table

    | Variable | Chi-Square Statistic | P-Value |
    |----------|----------------------|---------|
    | Age      | 12.5                 | 0.005   |

    """,
    entry_type="OUTPUT",
    source="implementation_engineer"
)

The notebook is a critical scientific record the planning team will use to plan the next steps.
`)
}

// DirectoryReminder is the short re-statement of the output directory rule
// injected before each revision round.
func DirectoryReminder(outputDir string) chat.Message {
	return chat.NewMessage(SourceUser, fmt.Sprintf(`IMPORTANT REMINDER: ALL output files (plots, data, etc.) MUST be saved in:
%[1]s

Examples of correct paths:
- plt.savefig('%[1]s/histogram.png')
- df.to_csv('%[1]s/results.csv')`, outputDir))
}

// TroubleshootingReminder is injected before each revision round.
func TroubleshootingReminder() chat.Message {
	return chat.NewMessage(SourceUser, `TROUBLESHOOTING REMINDER:

1. When fixing problems or addressing feedback:
   - Start by understanding exactly what's not working or what feedback needs to be addressed
   - Break down the problem into smaller parts
   - Test each part separately to find which component needs fixing
   - Make one change at a time and test its effect

2. For data handling issues:
   - Re-read the task description before claiming data is insufficient
   - Verify your loading code against the documented file formats
   - Print shapes and sample rows after every transformation

3. For visualization issues:
   - Add proper titles, labels, and legends to all plots
   - Use appropriate color schemes
   - Include statistical context in the visualization
   - Save all plots to the correct output directory
`)
}

// FeedbackAcknowledgment requires the implementer to restate critic feedback
// before coding. Injected before each revision round.
func FeedbackAcknowledgment() chat.Message {
	return chat.NewMessage(SourceUser, `CRITICAL REQUIREMENT: Once you receive feedback from the critic, you MUST explicitly acknowledge each point of feedback before implementing changes.

Your response MUST begin with:

"I acknowledge the following feedback points from the critic:
1. [Restate first feedback point from the critic]
2. [Restate second feedback point from the critic]
3. [Restate third feedback point from the critic]
...etc.

My implementation plan to address each point:
1. [Your plan to address the first point]
2. [Your plan to address the second point]
3. [Your plan to address the third point]
...etc."

DO NOT proceed with code implementation until you have explicitly acknowledged each feedback point from the critic.
`)
}

// CriticToolInstruction tells the critic which tools to use before judging.
// Appended to every critic input.
func CriticToolInstruction(outputDir string) chat.Message {
	return chat.NewMessage(SourceUser, fmt.Sprintf(`TOOLS AVAILABLE FOR YOUR REVIEW:

The following tools can help you evaluate the implementation:
- search_directory("%[1]s", "*.png") to find visualization files
- analyze_plot("%[1]s/filename.png") to examine any visualizations of interest
- search_directory("%[1]s", "*") to see all output files
- read_notebook() to see the project history and context

You can use these tools as needed to support your assessment. Tools are particularly helpful for examining visualizations that seem relevant to your evaluation. In your first review, examining some visualizations is recommended but not mandatory.

In follow-up reviews, you can focus primarily on whether the engineer addressed your previous feedback and only analyze plots that are new or relevant to the changes.

IMPORTANT: After completing your review, if you APPROVE the implementation, also document significant metrics and results in the lab notebook using write_notebook.
`, outputDir))
}

// EvidenceReminder is injected when the critic approves without having made
// a single tool call. The approval is discarded and the critic reviews
// again with this block appended.
func EvidenceReminder(outputDir string) chat.Message {
	return chat.NewMessage(SourceUser, fmt.Sprintf(`REVIEW VERIFICATION REQUIRED:

Your previous approval did not include any tool-based inspection of the outputs. Before giving a final verdict you MUST gather evidence:
- search_directory("%[1]s", "*") to list the produced files
- analyze_plot("%[1]s/filename.png") for any visualization relevant to your assessment
- read_notebook() to cross-check the recorded results

Re-review the implementation now, citing what your tool inspection showed, then give your verdict again.
`, outputDir))
}

// PerformanceTargets builds the completion-criteria reminder the planning
// controller injects ahead of each planning task. criteria is the
// project-specific target text; doneToken is the marker the lead role must
// emit when the entire workflow is finished.
func PerformanceTargets(criteria, doneToken string) chat.Message {
	return chat.NewMessage(SourceSystem, fmt.Sprintf(`CRITICAL PERFORMANCE TARGETS REMINDER:
%s

FINAL COMPLETION:
Only after ALL requirements have been met, explicitly state "%s" to indicate the complete project has been successfully finished.
`, criteria, doneToken))
}
