package mcpserver

// BlogFormatContract describes the blog record every save must produce.
const BlogFormatContract = `# Inkwell Blog Format Contract

Blogs live in a GitHub repository as JSON files:

- ` + "`blogs.json`" + ` - the index, a JSON array of every blog record in display order.
- ` + "`blogs/{slug}.json`" + ` - one record per blog.
- ` + "`images/{slug}.png`" + ` - the cover image of a blog, when it has one.

## Record

` + "```" + `json
{
  "slug": "my-first-post",
  "title": "My First Post",
  "shortDescription": "Optional one-line summary",
  "content": "<p>HTML body produced by the editor.</p>",
  "image": "https://raw.githubusercontent.com/{owner}/{repo}/{branch}/images/my-first-post.png",
  "date": "5-3-2024"
}
` + "```" + `

## Rules

1. **title** and **content** are required and non-empty.
2. **slug** is the file name stem. Letters, digits, ` + "`-`" + ` and ` + "`_`" + ` only, starting with a
   letter or digit. When empty it is derived from the title (lowercase, other characters
   collapse to ` + "`-`" + `). A slug never changes; saving the same slug replaces the blog.
3. **content** is HTML. It is stored as is.
4. **image** is empty, an absolute URL, or a ` + "`data:image/...;base64,`" + ` URI. Data URIs
   (png, jpeg, gif or webp) are uploaded to ` + "`images/{slug}.png`" + ` and replaced by the raw
   URL of that file before the record is written.
5. **date** is set on every save as D-M-YYYY without leading zeros. Any value sent is
   overwritten.
6. **shortDescription** is omitted from the stored JSON when empty.

## Deleting

Deleting a blog removes it from the index. Its record file is committed once more with the
message ` + "`Deleted blog: {slug}`" + ` and stays in the repository history.
`
