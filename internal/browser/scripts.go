// internal/browser/scripts.go
package browser

import "fmt"

// rowAttr tags each listed conversation row so it can be clicked again by index.
const rowAttr = "data-marketpilot-row"

// listConversationsScript returns the visible inbox rows as
// [{index, href, unread, preview}] in page order.
var listConversationsScript = fmt.Sprintf(`(() => {
	const rows = Array.from(document.querySelectorAll("div[role='grid'] div[role='row'], div[role='navigation'] div[role='row']"));
	const seen = new Set();
	const out = [];
	rows.forEach((row) => {
		const link = row.querySelector("a[href*='/t/']");
		const href = link ? link.href : "";
		if (href) {
			if (seen.has(href)) return;
			seen.add(href);
		}
		const index = out.length;
		row.setAttribute(%[1]q, String(index));
		const label = (row.getAttribute("aria-label") || "") + " " + ((link && link.getAttribute("aria-label")) || "");
		const lines = (row.innerText || "").split("\n").map(s => s.trim()).filter(Boolean);
		const heavy = Array.from(row.querySelectorAll("span")).some(s => parseInt(getComputedStyle(s).fontWeight, 10) >= 700);
		out.push({
			index: index,
			href: href,
			unread: /\bunread\b/i.test(label) || heavy,
			preview: lines.length ? lines[lines.length - 1] : "",
		});
	});
	return out;
})()`, rowAttr)

// clickRowScript clicks the row tagged by listConversationsScript and
// reports whether it was still on the page.
func clickRowScript(index int) string {
	return fmt.Sprintf(`(() => {
	const row = document.querySelector('[%s="%d"]');
	if (!row) return false;
	(row.querySelector("a[href*='/t/']") || row).click();
	return true;
})()`, rowAttr, index)
}

// lastIncomingMessageScript returns the text of the newest message not sent
// by the account owner, or "" when the thread shows none.
const lastIncomingMessageScript = `(() => {
	const root = document.querySelector("[role='main']") || document.body;
	const texts = (node) => Array.from(node.querySelectorAll("div[dir='auto']"))
		.map(n => (n.innerText || "").trim())
		.filter(Boolean);
	const rows = Array.from(root.querySelectorAll("[role='row']"));
	for (let i = rows.length - 1; i >= 0; i--) {
		const row = rows[i];
		if (/^\s*You sent/i.test(row.innerText || "")) continue;
		const parts = texts(row);
		if (parts.length) return parts[parts.length - 1];
	}
	if (rows.length) return "";
	const all = texts(root);
	return all.length ? all[all.length - 1] : "";
})()`

// threadHeaderScript returns {buyer, item} from the open thread's header.
// Marketplace threads show "Buyer · Item title" or the two on separate lines.
const threadHeaderScript = `(() => {
	const root = document.querySelector("[role='main']") || document.body;
	const heading = root.querySelector("h1, h2, [role='heading']");
	const lines = heading ? (heading.innerText || "").split("\n").map(s => s.trim()).filter(Boolean) : [];
	let buyer = lines[0] || "";
	let item = lines[1] || "";
	if (!item && buyer.includes("·")) {
		const parts = buyer.split("·");
		buyer = parts.shift().trim();
		item = parts.join("·").trim();
	}
	return {buyer: buyer, item: item};
})()`
